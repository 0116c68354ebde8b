package storage

import (
	"os"
)

// SizeBytes returns the on-disk size of the database including its WAL and shared-memory files.
// Missing files contribute 0.
func (s *SQLiteStore) SizeBytes() (int64, error) {
	return fileSizes(s.path, s.path+"-wal", s.path+"-shm")
}

// DiskUsage reports the on-disk footprint of store when it is file backed.
// ok is false for stores without local files.
func DiskUsage(store RecordStore) (bytes int64, ok bool, err error) {
	sized, isSized := store.(interface{ SizeBytes() (int64, error) })
	if !isSized {
		return 0, false, nil
	}
	n, err := sized.SizeBytes()
	return n, true, err
}

func fileSizes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}
