//go:build ignore

// Analyze-capture replays a captured BioHarness byte stream through the
// framer and decoder and reports what it finds. Useful for checking a
// bridge capture before pointing the live pipeline at it.
//
// The input file is either raw binary or hex (one or more hex strings,
// whitespace ignored; use -hex to force).
//
// Usage:
//
//	go run tools/analyze-capture.go [-hex] [-v] <capture-file>
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
)

var (
	forceHex = flag.Bool("hex", false, "treat the input as hex text")
	verbose  = flag.Bool("v", false, "print every packet, not just the summary")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: analyze-capture [-hex] [-v] <capture-file>")
		os.Exit(1)
	}

	filename := flag.Arg(0)
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	if *forceHex || looksLikeHex(data) {
		decoded, err := decodeHexDump(data)
		if err != nil {
			fmt.Printf("Error decoding hex input: %v\n", err)
			os.Exit(1)
		}
		data = decoded
	}

	fmt.Printf("=== BioHarness Capture Analyzer ===\n")
	fmt.Printf("File:  %s\n", filename)
	fmt.Printf("Bytes: %d\n\n", len(data))

	framer := protocol.NewFramer()
	counts := make(map[protocol.MessageID]int)
	decodeFailures := 0
	samples := 0
	marks := 0

	// Feed in small chunks to exercise the same resync paths the live
	// session uses.
	for off := 0; off < len(data); off += 64 {
		end := off + 64
		if end > len(data) {
			end = len(data)
		}
		for _, pkt := range framer.Feed(data[off:end]) {
			counts[pkt.ID]++
			if *verbose {
				fmt.Printf("  %s\n", pkt)
			}
			if !protocol.PeriodicMessages[pkt.ID] {
				continue
			}
			burst, err := protocol.Decode(pkt)
			if err != nil {
				decodeFailures++
				fmt.Printf("  DECODE FAIL %s: %v\n", pkt.ID, err)
				continue
			}
			samples += len(burst.Samples)
			marks += len(burst.Marks)
		}
	}

	stats := framer.Stats()
	fmt.Printf("Valid packets:   %d\n", stats.Packets)
	fmt.Printf("Discarded bytes: %d\n", stats.Discarded)
	fmt.Printf("Decode failures: %d\n", decodeFailures)
	fmt.Printf("Samples decoded: %d\n", samples)
	fmt.Printf("Marks decoded:   %d\n\n", marks)

	if len(counts) > 0 {
		fmt.Println("Packets by type:")
		ids := make([]protocol.MessageID, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Printf("  %-22s %d\n", id, counts[id])
		}
	}
}

// looksLikeHex guesses whether the capture is hex text rather than binary.
func looksLikeHex(data []byte) bool {
	window := data
	if len(window) > 512 {
		window = window[:512]
	}
	for _, b := range window {
		switch {
		case b >= '0' && b <= '9', b >= 'a' && b <= 'f', b >= 'A' && b <= 'F':
		case b == ' ', b == '\n', b == '\r', b == '\t':
		default:
			return false
		}
	}
	return len(window) > 0
}

func decodeHexDump(data []byte) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, string(data))
	return hex.DecodeString(clean)
}
