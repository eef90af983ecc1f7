// Package simulation turns a trait profile and a seeded generator into
// episode records and their aggregate statistics.
//
// A run owns exactly one rng.Generator. Every episode consumes four draws from
// it in a fixed order, so the full episode sequence is determined by the seed,
// the traits and the episode count. Episodes must be generated sequentially;
// parallel work has to use separately seeded generators (see internal/tuning).
//
// Usage:
//
//	batch := simulation.Run(models.DefaultTraits(), 1, 10, nil)
//	fmt.Println(batch.Aggregate.ObjectiveRate)
//
// The package performs no I/O and never logs.
package simulation
