// Package database provides the SQLite run history of descale-qc.
//
// Every classification run recorded by the command line tools is stored
// with its kind (single, multi, dual), source paths, frame and scene
// counts, and the text of every catalogue it produced. The catalogue
// server reads runs back from the same file.
//
// The database uses WAL mode so the server can read while a run is being
// recorded, and initializes its schema on open.
package database
