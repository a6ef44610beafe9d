package storage

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kd2675/image-back-server/internal/cache"
	"github.com/kd2675/image-back-server/internal/processor"
)

// Store persists uploaded images and their derived resolutions under a
// date-partitioned directory tree. The root is resolved once at startup and
// read-only afterwards; the directory tree is the only shared mutable state.
type Store struct {
	root  string
	cache *cache.VariantCache

	// group collapses concurrent generations of the same missing variant
	// into one decode/scale/write; genTokens bounds how many generations may
	// hold pixels in memory at once across all keys.
	group     singleflight.Group
	genTokens chan struct{}

	storedImages      atomic.Int64
	generatedVariants atomic.Int64
}

// Stats are the store's lifetime counters, surfaced on the stats endpoint.
type Stats struct {
	StoredImages      int64 `json:"stored_images"`
	GeneratedVariants int64 `json:"generated_variants"`
}

func New(root string, variantCache *cache.VariantCache, maxGenerations int) *Store {
	if maxGenerations <= 0 {
		maxGenerations = 1
	}
	return &Store{
		root:      root,
		cache:     variantCache,
		genTokens: make(chan struct{}, maxGenerations),
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Stats() Stats {
	return Stats{
		StoredImages:      s.storedImages.Load(),
		GeneratedVariants: s.generatedVariants.Load(),
	}
}

// StoreImage decodes data once, writes the original plus the four fixed
// sizes into today's partition, and returns the reference
// "YYYY/MM/DD/{id}{ext}". Files already written when a later step fails are
// left on disk.
func (s *Store) StoreImage(data []byte, originalFilename string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}

	_, ext := splitExt(originalFilename)
	if ext == "" {
		ext = defaultExtension
	}
	format, err := processor.FormatForExtension(ext)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	img, err := processor.Decode(data)
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	id := newImageID()
	partition := partitionFor(time.Now())
	dir := filepath.Join(s.root, filepath.FromSlash(partition))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition %s: %w", partition, err)
	}

	if err := s.writeImage(dir, id+ext, img, format); err != nil {
		return "", err
	}
	slog.Info("stored original image", "partition", partition, "file", id+ext)

	var g errgroup.Group
	for _, size := range eagerSizes {
		size := size
		g.Go(func() error {
			scaled := processor.Fit(img, size.Width, size.Height)
			return s.writeImage(dir, taggedName(id, size.Tag, ext), scaled, format)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	s.storedImages.Add(1)
	return partition + "/" + id + ext, nil
}

// LoadImage returns the contents and file name of the requested image. With
// width and height both positive it serves the deterministic resized
// variant, generating and caching it from the original on first request;
// otherwise it serves the original unchanged. A single supplied dimension
// means no resize was requested.
func (s *Store) LoadImage(partition, filename string, width, height int) ([]byte, string, error) {
	if !safeRelPath(partition) || !safeName(filename) {
		return nil, "", fmt.Errorf("%w: %s/%s", ErrNotFound, partition, filename)
	}
	dir := filepath.Join(s.root, filepath.FromSlash(partition))

	if width <= 0 || height <= 0 {
		data, err := s.readThrough(dir, partition, filename)
		if err != nil {
			return nil, "", err
		}
		return data, filename, nil
	}

	base, ext := splitExt(filename)
	variant := sizedName(base, ext, width, height)

	if data, err := s.readThrough(dir, partition, variant); err == nil {
		return data, variant, nil
	}

	key := partition + "/" + variant
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.generateVariant(dir, filename, variant, width, height)
	})
	if err != nil {
		return nil, "", err
	}

	data := v.([]byte)
	s.cache.Set(key, data)
	return data, variant, nil
}

// readThrough serves partition/name from the memory cache or the
// filesystem. Any read failure is reported as not found, matching the
// contract that unreadable files and missing files are indistinguishable to
// callers.
func (s *Store) readThrough(dir, partition, name string) ([]byte, error) {
	key := partition + "/" + name
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.cache.Set(key, data)
	return data, nil
}

// generateVariant runs inside the singleflight group: it re-checks the
// destination, then decodes the original, scales to the exact requested
// geometry, and publishes the result atomically.
func (s *Store) generateVariant(dir, originalName, variantName string, width, height int) ([]byte, error) {
	// A previous flight may have published between our miss and this call.
	if data, err := os.ReadFile(filepath.Join(dir, variantName)); err == nil {
		return data, nil
	}

	src, err := os.ReadFile(filepath.Join(dir, originalName))
	if err != nil {
		return nil, fmt.Errorf("%w: original for resizing %s", ErrNotFound, originalName)
	}

	s.genTokens <- struct{}{}
	defer func() { <-s.genTokens }()

	img, err := processor.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create resized image %s: %w", variantName, err)
	}
	format, err := processor.FormatForExtension(filepath.Ext(variantName))
	if err != nil {
		return nil, fmt.Errorf("failed to create resized image %s: %w", variantName, err)
	}

	var buf bytes.Buffer
	if err := processor.Encode(&buf, processor.Exact(img, width, height), format); err != nil {
		return nil, fmt.Errorf("failed to create resized image %s: %w", variantName, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, variantName), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to create resized image %s: %w", variantName, err)
	}

	s.generatedVariants.Add(1)
	slog.Info("generated resized image", "file", variantName, "width", width, "height", height)
	return buf.Bytes(), nil
}

func (s *Store) writeImage(dir, name string, img image.Image, format imaging.Format) error {
	var buf bytes.Buffer
	if err := processor.Encode(&buf, img, format); err != nil {
		return fmt.Errorf("failed to store file %s: %w", name, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, name), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store file %s: %w", name, err)
	}
	return nil
}

// writeFileAtomic publishes data at path via a temp file in the same
// directory and a rename, so concurrent readers never observe a partial
// file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// safeRelPath accepts forward-slash relative paths with no traversal or
// absolute segments, such as the YYYY/MM/DD partitions handed back to
// clients.
func safeRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

func safeName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}
