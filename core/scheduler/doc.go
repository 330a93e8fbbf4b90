// Package scheduler computes the compliance and marketing emails owed to a
// contact. Scheduler resolves one contact at a time, AEPAllocator spreads the
// AEP email over four fixed weeks and Batch fans the computation out over many
// contacts before rebalancing AEP across the whole batch.
package scheduler
