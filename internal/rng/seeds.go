package rng

import "strconv"

// Seed derivation forms a tree: master -> hour -> worker -> player.
// Each level appends a fixed suffix, so any node can be recomputed from
// its parent without shared state.

// HourSeed derives the seed for one simulated hour.
func HourSeed(masterSeed string, hour int64) string {
	return masterSeed + "-hour-" + strconv.FormatInt(hour, 10)
}

// WorkerSeed derives the seed for one worker within an hour.
func WorkerSeed(globalSeed string, workerIndex int) string {
	return globalSeed + "-worker-" + strconv.Itoa(workerIndex)
}

// PlayerSeed derives the seed for one player within a worker's chunk.
func PlayerSeed(workerSeed string, playerID int64) string {
	return workerSeed + "-" + strconv.FormatInt(playerID, 10)
}

// TriggerSeed derives the seed for a player's session-start decision.
func TriggerSeed(hourSeed string, playerID int64) string {
	return hourSeed + "-trigger-" + strconv.FormatInt(playerID, 10)
}
