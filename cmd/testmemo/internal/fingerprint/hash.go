package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// absentFile is hashed in place of a source file that does not exist on
// disk, typically the output of another rule that has not been built yet.
const absentFile = "<absent>"

// HashFile computes xxHash64 of file contents, returns hex string.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return sumHex(h), nil
}

// HashDir hashes every regular file below dir, keyed by its path relative
// to dir, in lexical order.
func HashDir(dir string) (string, error) {
	enc := newEncoder()
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		sum, err := HashFile(p)
		if err != nil {
			return err
		}
		enc.field(filepath.ToSlash(rel))
		enc.field(sum)
		return nil
	})
	if err != nil {
		return "", err
	}
	return enc.sum(), nil
}

func sumHex(h *xxhash.Digest) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return hex.EncodeToString(buf[:])
}

// encoder feeds length-prefixed fields into an xxHash64 digest so that no
// two different field sequences produce the same byte stream.
type encoder struct {
	h *xxhash.Digest
}

func newEncoder() *encoder {
	return &encoder{h: xxhash.New()}
}

func (e *encoder) field(s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = e.h.Write(n[:])
	_, _ = e.h.WriteString(s)
}

func (e *encoder) count(n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	_, _ = e.h.Write(buf[:])
}

func (e *encoder) sum() string {
	return sumHex(e.h)
}

// fileCache memoizes content hashes for the duration of one Fingerprint call.
type fileCache struct {
	root string

	mu     sync.Mutex
	hashes map[string]string
}

func newFileCache(root string) *fileCache {
	return &fileCache{root: root, hashes: make(map[string]string)}
}

// hash returns the content hash of the workspace-relative path rel.
func (c *fileCache) hash(rel string) (string, error) {
	c.mu.Lock()
	sum, ok := c.hashes[rel]
	c.mu.Unlock()
	if ok {
		return sum, nil
	}

	p := filepath.Join(c.root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sum = absentFile
	case err != nil:
		return "", fmt.Errorf("stat %s: %w", rel, err)
	case info.IsDir():
		if sum, err = HashDir(p); err != nil {
			return "", fmt.Errorf("hash %s: %w", rel, err)
		}
	default:
		if sum, err = HashFile(p); err != nil {
			return "", fmt.Errorf("hash %s: %w", rel, err)
		}
	}

	c.mu.Lock()
	c.hashes[rel] = sum
	c.mu.Unlock()
	return sum, nil
}

func (c *fileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hashes)
}
