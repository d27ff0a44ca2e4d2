// Package batch runs the crawl over a list of start URLs. The Orchestrator
// consults the progress ledger to skip finished URLs and resume unfinished
// ones, drives each attempt through an isolated AttemptRunner, and persists
// the ledger after every URL.
package batch
