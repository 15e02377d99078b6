// Package audit writes the append-only JSONL record of operational events:
// connection lifecycle, frame budget overruns, and API actions. The log
// file rotates by size.
package audit
