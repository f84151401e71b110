package quivigo_test

import (
	"context"
	"fmt"

	"github.com/quivigo/quivigo"
	"github.com/quivigo/quivigo/distance"
)

func Example() {
	ctx := context.Background()

	eng, err := quivigo.New(4, quivigo.WithMetric(distance.MetricCosine))
	if err != nil {
		panic(err)
	}
	defer eng.Close(ctx)

	owner := "tenant-a"
	_ = eng.Insert(ctx, owner, 1, []float32{1, 0, 0, 0})
	_ = eng.Insert(ctx, owner, 2, []float32{0, 1, 0, 0})
	_ = eng.Insert(ctx, owner, 3, []float32{0.9, 0.1, 0, 0})

	results, err := eng.Search(ctx, owner, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		panic(err)
	}

	for _, r := range results {
		fmt.Println(r.ID)
	}
	// Output:
	// 1
	// 3
}
