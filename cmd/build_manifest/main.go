package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emotion-recognition/emotion"
)

// Builds a training manifest from a folder-per-class layout:
//
//	data/
//	  happy/clip1.wav
//	  sad/clip2.wav
//	  ...
//
// Only folders named after known emotion labels are included; everything
// else is reported and skipped.

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

func main() {
	dataDir := flag.String("data-dir", "data", "Root directory with one folder per emotion")
	outPath := flag.String("out", "labels.csv", "Manifest output path")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)

	entries, err := os.ReadDir(*dataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read data directory: %v", err)
	}

	type row struct {
		path  string
		label string
	}
	var rows []row
	counts := map[string]int{}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		if _, err := emotion.LabelIndex(label); err != nil {
			log.Printf("Skipping folder %q: not a known emotion label\n", label)
			continue
		}

		labelDir := filepath.Join(*dataDir, label)
		err := filepath.WalkDir(labelDir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, err := filepath.Rel(*dataDir, path)
			if err != nil {
				return err
			}
			rows = append(rows, row{path: filepath.ToSlash(rel), label: label})
			counts[label]++
			return nil
		})
		if err != nil {
			log.Fatalf("ERROR: Failed to walk %s: %v", labelDir, err)
		}
	}

	if len(rows) == 0 {
		log.Fatalf("ERROR: No audio files found under %s", *dataDir)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	file, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to create manifest: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"path", "label"}); err != nil {
		log.Fatalf("ERROR: Failed to write manifest header: %v", err)
	}
	for _, r := range rows {
		if err := writer.Write([]string{r.path, r.label}); err != nil {
			log.Fatalf("ERROR: Failed to write manifest row: %v", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Fatalf("ERROR: Failed to flush manifest: %v", err)
	}

	log.Printf("Wrote %d rows to %s\n", len(rows), *outPath)
	for _, label := range emotion.Emotions {
		log.Printf("  %-10s %d\n", label, counts[label])
	}
}
