package voice

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// audioExtensions are the suffixes stripped from voice ids and scanned for
// by [Store.PreloadAll].
var audioExtensions = []string{".mp3", ".wav", ".m4a", ".flac"}

// NormalizeID trims surrounding space and strips trailing audio file
// extensions (case-insensitively) from id, so "ana.WAV" and "ana" name the
// same voice.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	for {
		stripped := false
		lower := strings.ToLower(id)
		for _, ext := range audioExtensions {
			if strings.HasSuffix(lower, ext) {
				id = id[:len(id)-len(ext)]
				stripped = true
				break
			}
		}
		if !stripped {
			return id
		}
	}
}

// validID reports whether id can be used as a file name inside the
// reference directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// HashID derives a voice id from the content of the file at path: the
// first 16 hex digits of its MD5 sum.
func HashID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("voice: hash upload: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("voice: hash upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
