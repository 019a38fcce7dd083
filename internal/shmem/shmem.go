// Package shmem implements the one-shot memory-mapped handoff used to pass
// an algorithm's prepend window to its Script Host subprocess. Only this
// initial window crosses the shared-memory boundary; every tick after that
// travels over the IPC socket.
package shmem

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// Write truncates the file at path to hold the JSON-encoded sequence, then
// mmaps and copies it in. The Script Host reads the same file by mapping it
// read-only; the map is not kept open past this call.
func Write(path string, sequence []model.Candlestick) error {
	data, err := json.Marshal(sequence)
	if err != nil {
		return apperrors.NewParseError("failed to encode prepend sequence", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperrors.NewAlgorithmError(fmt.Sprintf("failed to open shmem file: %v", err))
	}
	defer f.Close()

	if len(data) == 0 {
		return nil
	}

	if err := f.Truncate(int64(len(data))); err != nil {
		return apperrors.NewAlgorithmError(fmt.Sprintf("failed to size shmem file: %v", err))
	}

	region, err := unix.Mmap(int(f.Fd()), 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return apperrors.NewAlgorithmError(fmt.Sprintf("failed to mmap shmem file: %v", err))
	}
	defer unix.Munmap(region)

	copy(region, data)
	return nil
}

// Read mmaps path read-only and decodes its contents as the initial working
// sequence. An empty file decodes to an empty sequence.
func Read(path string) ([]model.Candlestick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewAlgorithmError(fmt.Sprintf("failed to open shmem file: %v", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperrors.NewAlgorithmError(fmt.Sprintf("failed to stat shmem file: %v", err))
	}
	if info.Size() == 0 {
		return []model.Candlestick{}, nil
	}

	region, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, apperrors.NewAlgorithmError(fmt.Sprintf("failed to mmap shmem file: %v", err))
	}
	defer unix.Munmap(region)

	var sequence []model.Candlestick
	if err := json.Unmarshal(region, &sequence); err != nil {
		return nil, apperrors.NewParseError("malformed shmem prepend sequence", err)
	}
	return sequence, nil
}
