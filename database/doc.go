// Package database provides a cursor-style prepared-statement API on top of a
// libsql.Engine, which only ever answers with whole result sets.
//
// A Connection owns one engine (and optionally a second engine for reads). A
// Statement is created per query: bind values, Execute, then Fetch rows one at
// a time or FetchAll of them in one of the FetchMode shapes. Statements are
// not safe for concurrent use and a Connection is meant to be reused
// sequentially.
package database
