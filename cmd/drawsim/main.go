// drawsim draws from the prize table many times and prints observed frequency
// next to the configured weight for each slot.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"text/tabwriter"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
)

func main() {
	n := flag.Int("n", 100_000, "number of draws")
	seed := flag.Uint64("seed", 0, "PCG seed, 0 for a random source")
	flag.Parse()

	table := lottery.DefaultPrizeTable()
	var opts []lottery.DrawerOption
	if *seed != 0 {
		r := rand.New(rand.NewPCG(*seed, *seed))
		opts = append(opts, lottery.WithRand(r.Float64))
	}
	drawer := lottery.NewDrawer(table, opts...)

	counts := make(map[int]int, table.Len())
	for i := 0; i < *n; i++ {
		counts[drawer.Draw().SlotID]++
	}

	fmt.Printf("📊 %d draws, total weight %.4f\n", *n, table.TotalWeight())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "slot\tweight\tobserved\tdelta\t")
	for _, p := range table.Prizes() {
		observed := float64(counts[p.SlotID]) / float64(*n)
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%+.4f\t\n", p.SlotID, p.Weight, observed, observed-p.Weight)
	}
	w.Flush()
}
