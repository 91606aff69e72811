package spider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	binaryFile = "spider.jar"
	metaFile   = "spider.json"
)

// metadata is the JSON sidecar written next to the binary.
type metadata struct {
	Checksum  string `json:"checksum"`
	OriginURL string `json:"originURL"`
	Succeeded bool   `json:"succeeded"`
	FetchedAt int64  `json:"fetchedAtUnixSeconds"`
	SizeBytes int    `json:"sizeBytes"`
}

// DiskCache is the persistent tier: <Dir>/spider.jar plus <Dir>/spider.json.
type DiskCache struct {
	Dir string
	TTL time.Duration // entries older than this are ignored by Load

	now func() time.Time
}

func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	if dir == "" {
		dir = ".cache"
	}
	return &DiskCache{Dir: dir, TTL: ttl, now: time.Now}
}

func (d *DiskCache) binaryPath() string { return filepath.Join(d.Dir, binaryFile) }
func (d *DiskCache) metaPath() string   { return filepath.Join(d.Dir, metaFile) }

// Load returns the persisted record, or false when it is absent, unreadable, older
// than TTL, or its binary no longer matches the recorded checksum.
func (d *DiskCache) Load() (Record, bool) {
	raw, err := os.ReadFile(d.metaPath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("spider: disk cache: read metadata: %v", err)
		}
		return Record{}, false
	}
	var m metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Warnf("spider: disk cache: parse metadata: %v", err)
		return Record{}, false
	}
	fetchedAt := time.Unix(m.FetchedAt, 0)
	age := d.now().Sub(fetchedAt)
	if age > d.TTL {
		log.Infof("spider: disk cache expired age=%s", age.Truncate(time.Second))
		return Record{}, false
	}
	bin, err := os.ReadFile(d.binaryPath())
	if err != nil {
		log.Warnf("spider: disk cache: read binary: %v", err)
		return Record{}, false
	}
	if sum := Checksum(bin); sum != m.Checksum {
		log.WithFields(log.Fields{"want": m.Checksum, "got": sum}).Warn("spider: disk cache checksum mismatch, discarding")
		return Record{}, false
	}
	return Record{
		Binary:    bin,
		Checksum:  m.Checksum,
		OriginURL: m.OriginURL,
		Succeeded: m.Succeeded,
		FetchedAt: fetchedAt,
		SizeBytes: len(bin),
		Cached:    true,
	}, true
}

// Save writes the binary then the metadata, each atomically (temp file + rename).
func (d *DiskCache) Save(r Record) error {
	if r.Binary == nil {
		return fmt.Errorf("spider: disk cache: no binary to save")
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("spider: disk cache: mkdir: %w", err)
	}
	if err := writeAtomic(d.binaryPath(), r.Binary); err != nil {
		return err
	}
	data, err := json.MarshalIndent(metadata{
		Checksum:  r.Checksum,
		OriginURL: r.OriginURL,
		Succeeded: r.Succeeded,
		FetchedAt: r.FetchedAt.Unix(),
		SizeBytes: r.SizeBytes,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("spider: disk cache: marshal: %w", err)
	}
	return writeAtomic(d.metaPath(), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("spider: disk cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("spider: disk cache: write: %w", writeErr)
		}
		return fmt.Errorf("spider: disk cache: close: %w", closeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("spider: disk cache: rename: %w", err)
	}
	return nil
}
