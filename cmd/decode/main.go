package main

import (
	"flag"
	"io"
	"log"
	"log/slog"
	"os"

	"cantrace/internal/canid"
	"cantrace/internal/catalog"
	"cantrace/internal/engine"
	"cantrace/internal/export"
	"cantrace/internal/lineproto"
)

func main() {
	catalogPath := flag.String("catalog", "catalog.yaml", "Path to message catalog YAML")
	inPath := flag.String("in", "", "Captured line-protocol file to decode")
	tracePath := flag.String("trace", "", "Write trace output to this file")
	csvPath := flag.String("csv", "", "Write decoded CSV output to this file")
	idsAreHex := flag.Bool("hex", true, "Treat identifiers in the capture as hex text")
	flag.Parse()

	if *inPath == "" {
		log.Fatal("-in is required")
	}
	if *tracePath == "" && *csvPath == "" {
		log.Fatal("at least one of -trace or -csv is required")
	}

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	in, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer in.Close()

	// Replay the capture through the same parser and pipeline the live
	// path uses, then drain synchronously.
	eng := engine.New(engine.Options{})
	parser := lineproto.NewParser(slog.Default())

	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			for _, rec := range parser.Feed(string(buf[:n])) {
				id, err := canid.Normalize(rec.RawID, *idsAreHex)
				if err != nil {
					continue
				}
				eng.Push(id, rec.DLC, rec.Data)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read capture: %v", err)
		}
	}
	eng.FlushNow()

	frames := eng.Log()
	log.Printf("Decoded %d frames (%d lines dropped)", len(frames), parser.Dropped())

	if *tracePath != "" {
		writeOutput(*tracePath, func(w io.Writer) error {
			return export.Trace(w, frames, eng.SessionStart())
		})
		log.Printf("Wrote trace to %s", *tracePath)
	}

	if *csvPath != "" {
		writeOutput(*csvPath, func(w io.Writer) error {
			return export.DecodedCSV(w, frames, cat)
		})
		log.Printf("Wrote decoded CSV to %s", *csvPath)
	}
}

func writeOutput(path string, write func(io.Writer) error) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		log.Fatalf("Failed to write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", path, err)
	}
}
