package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"time"
)

const archiveReadme = `SpeakUp session recordings for room %s
Generated: %s

Each .wav file is one speaking turn. Filenames are
  {startMillis}-{username}-{suffix}.wav
where startMillis is the Unix-millisecond timestamp of the moment the speaker
was granted the floor, so sorting the files by name replays the session in
order. The trailing 6 characters of the username portion are a random
per-connection suffix and can be ignored.
`

// WriteArchive streams a ZIP of the room's capture files to w, prefixed with
// a README.txt describing the file naming. Files are archived in timestamp
// order regardless of save order.
func WriteArchive(w io.Writer, roomCode string, files []File, generatedAt time.Time) error {
	zw := zip.NewWriter(w)

	readme, err := zw.Create("README.txt")
	if err != nil {
		return fmt.Errorf("create README.txt: %w", err)
	}
	if _, err := fmt.Fprintf(readme, archiveReadme, roomCode, generatedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write README.txt: %w", err)
	}

	ordered := make([]File, len(files))
	copy(ordered, files)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, f := range ordered {
		fw, err := zw.Create(f.Name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
