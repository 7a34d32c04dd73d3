// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package files provides the file system side of transfers: a Catalog of servable files, the requester's sink and
// a fingerprint of delivered data.
package files

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// CompressedSuffix is appended to a file's name to request an xz compressed copy.
const CompressedSuffix = ".xz"

// FileInfo describes a servable file. Its Name is the slash separated path below the Catalog's root.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Catalog is the set of regular files below a root directory, kept up to date by watching the file system.
// Symbolic links are followed as long as their targets stay below the root.
type Catalog struct {
	root     string
	compress bool

	mutex sync.RWMutex
	files map[string]FileInfo

	watcher *fsnotify.Watcher

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewCatalog for the given root directory. If compress is true, each file is also offered as an xz compressed copy,
// produced on the fly, by appending CompressedSuffix to its name.
func NewCatalog(root string, compress bool) (c *Catalog, err error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}
	if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
		return
	}
	if fi, statErr := os.Stat(absRoot); statErr != nil {
		err = statErr
		return
	} else if !fi.IsDir() {
		err = fmt.Errorf("%s is not a directory", absRoot)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}

	c = &Catalog{
		root:     absRoot,
		compress: compress,
		files:    make(map[string]FileInfo),
		watcher:  watcher,
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}

	if err = c.addTree(absRoot); err != nil {
		_ = watcher.Close()
		c = nil
		return
	}

	go c.handle()
	return
}

// relName converts an absolute path below root into a catalog name.
func (c *Catalog) relName(p string) (string, bool) {
	rel, err := filepath.Rel(c.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// resolve the target of a path below root, following all symbolic links. It must be a regular file below root.
func (c *Catalog) resolve(p string) (target string, fi fs.FileInfo, ok bool) {
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return
	}
	if _, inside := c.relName(target); !inside {
		return
	}

	fi, err = os.Stat(target)
	ok = err == nil && fi.Mode().IsRegular()
	return
}

// addTree registers all files and watches all directories below dir.
func (c *Catalog) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return c.watcher.Add(p)
		}

		c.addFile(p)
		return nil
	})
}

// addFile registers or updates a regular file. A path not resolving to a regular file below root is removed.
func (c *Catalog) addFile(p string) {
	name, ok := c.relName(p)
	if !ok {
		return
	}

	_, fi, ok := c.resolve(p)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !ok {
		delete(c.files, name)
		return
	}
	c.files[name] = FileInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}
}

// removePath unregisters a file or all files below a removed directory.
func (c *Catalog) removePath(p string) {
	name, ok := c.relName(p)
	if !ok {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.files, name)
	for known := range c.files {
		if strings.HasPrefix(known, name+"/") {
			delete(c.files, known)
		}
	}
}

func (c *Catalog) handle() {
	defer func() {
		_ = c.watcher.Close()
		close(c.stopAck)
	}()

	for {
		select {
		case <-c.stopSyn:
			return

		case e, ok := <-c.watcher.Events:
			if !ok {
				log.WithField("catalog", c).Error("fsnotify's Event channel was closed")
				<-c.stopSyn
				return
			}

			c.handleEvent(e)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				log.WithField("catalog", c).Error("fsnotify's Errors channel was closed")
				<-c.stopSyn
				return
			}

			log.WithField("catalog", c).WithError(err).Warn("fsnotify errored")
		}
	}
}

func (c *Catalog) handleEvent(e fsnotify.Event) {
	logger := log.WithFields(log.Fields{
		"catalog":   c,
		"file":      e.Name,
		"operation": e.Op.String(),
	})

	switch {
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		logger.Debug("File disappeared")
		c.removePath(e.Name)

	case e.Op&fsnotify.Create != 0:
		if fi, err := os.Lstat(e.Name); err == nil && fi.IsDir() {
			logger.Debug("Directory appeared")
			if err := c.addTree(e.Name); err != nil {
				logger.WithError(err).Warn("Watching new directory errored")
			}
		} else {
			logger.Debug("File appeared")
			c.addFile(e.Name)
		}

	case e.Op&fsnotify.Write != 0:
		c.addFile(e.Name)

	default:
		logger.Debug("Ignoring fsnotify event")
	}
}

// validName checks that a requested name stays within the root directory.
func validName(name string) bool {
	return fs.ValidPath(name) && name != "." && !strings.ContainsRune(name, 0)
}

// Lookup a file by its name. A file which was not yet reported by the file system watcher is looked up directly.
func (c *Catalog) Lookup(name string) (fi FileInfo, ok bool) {
	if !validName(name) {
		return
	}

	c.mutex.RLock()
	fi, ok = c.files[name]
	c.mutex.RUnlock()

	if !ok {
		c.addFile(filepath.Join(c.root, filepath.FromSlash(name)))

		c.mutex.RLock()
		fi, ok = c.files[name]
		c.mutex.RUnlock()
	}
	return
}

// List all known files, sorted by their names.
func (c *Catalog) List() (infos []FileInfo) {
	c.mutex.RLock()
	for _, fi := range c.files {
		infos = append(infos, fi)
	}
	c.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return
}

// Open a file by its name. Names escaping the root directory or unknown files result in an error wrapping
// fs.ErrNotExist.
func (c *Catalog) Open(name string) (io.ReadCloser, error) {
	if target, ok := c.target(name); ok {
		return os.Open(target)
	}

	if base := strings.TrimSuffix(name, CompressedSuffix); c.compress && base != name {
		if target, ok := c.target(base); ok {
			return c.openCompressed(base, target)
		}
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// target path of a known file, resolved again as its links might have changed.
func (c *Catalog) target(name string) (target string, ok bool) {
	if _, ok = c.Lookup(name); !ok {
		return
	}

	target, _, ok = c.resolve(filepath.Join(c.root, filepath.FromSlash(name)))
	return
}

// openCompressed streams an xz compressed copy of a file.
func (c *Catalog) openCompressed(name, target string) (io.ReadCloser, error) {
	f, err := os.Open(target)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		defer f.Close()

		xzw, err := xz.NewWriter(pw)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}

		if _, err = io.Copy(xzw, f); err == nil {
			err = xzw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	log.WithFields(log.Fields{
		"catalog": c,
		"file":    name,
	}).Debug("Serving xz compressed copy")

	return pr, nil
}

// Close the file system watcher.
func (c *Catalog) Close() error {
	close(c.stopSyn)
	<-c.stopAck

	return nil
}

func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(%s)", c.root)
}
