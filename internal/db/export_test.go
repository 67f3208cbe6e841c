package db

// EvictIdle runs one reaper sweep synchronously.
var EvictIdle = (*Pool).evictIdle
