package chainevm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertData extracts the raw revert payload carried by a JSON-RPC error, if any.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch d := dataErr.ErrorData().(type) {
	case string:
		b, decodeErr := hexutil.Decode(d)
		if decodeErr != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return d, true
	}
	return nil, false
}

// DecodeRevert turns revert data into a readable reason: the Error(string)
// message, or the name of a known contract custom error.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason, true
	}
	for name, e := range ParsedABI.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		values, err := e.Inputs.Unpack(data[4:])
		if err != nil || len(values) == 0 {
			return name, true
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprint(v)
		}
		return name + "(" + strings.Join(parts, ", ") + ")", true
	}
	return "", false
}

// RevertReason combines RevertData and DecodeRevert.
func RevertReason(err error) (string, bool) {
	data, ok := RevertData(err)
	if !ok {
		return "", false
	}
	return DecodeRevert(data)
}

// RevertError is a JSON-RPC style error carrying revert data. The evmtest
// backend returns it, and it matches what ethclient surfaces for reverted calls.
type RevertError struct {
	Message string
	Data    string
}

func (e *RevertError) Error() string          { return e.Message }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return e.Data }

// NewRevertError builds a RevertError for a custom contract error.
func NewRevertError(name string, args ...any) *RevertError {
	e, ok := ParsedABI.Errors[name]
	if !ok {
		return &RevertError{Message: "execution reverted"}
	}
	data := append([]byte(nil), e.ID[:4]...)
	if packed, err := e.Inputs.Pack(args...); err == nil {
		data = append(data, packed...)
	}
	return &RevertError{
		Message: "execution reverted: " + name,
		Data:    hexutil.Encode(data),
	}
}
