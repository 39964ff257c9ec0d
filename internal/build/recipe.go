package build

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
)

// Recipe describes how to build one artifact format.
type Recipe struct {
	// Run is the shell command that builds the format.
	Run string
	// Env is added to the command's isolated environment.
	Env map[string]string
	// Outputs are file or directory globs, relative to the working
	// directory, that the command is expected to produce.
	Outputs []string
}

// key identifies one build of a recipe for a version. Two requests with the
// same key inside a Builder's lifetime share a single build.
//
// Every component is length-prefixed; env keys and outputs are sorted.
func (r Recipe) key(workingDir, format, version string) string {
	h := sha256.New()
	var lenBuf [8]byte
	writeField := func(data string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		h.Write(lenBuf[:])
		h.Write([]byte(data))
	}

	writeField(workingDir)
	writeField(format)
	writeField(version)
	writeField(r.Run)

	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeField(strconv.Itoa(len(keys)))
	for _, k := range keys {
		writeField(k)
		writeField(r.Env[k])
	}

	outputs := append([]string(nil), r.Outputs...)
	sort.Strings(outputs)
	for _, o := range outputs {
		writeField(o)
	}
	return hex.EncodeToString(h.Sum(nil))
}
