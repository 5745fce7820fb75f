package process

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// SystemName stands in for processes whose image cannot be queried, such
// as the kernel, protected processes and ids that have already exited.
const SystemName = "SYSTEM"

// Resolver returns the full image path of a process.
type Resolver interface {
	ImagePath(pid uint32) (string, error)
}

// Name returns the image path of pid, or SystemName when it cannot be
// resolved. Ids 0 and 4 always belong to the system.
func Name(r Resolver, pid uint32) string {
	if pid == 0 || pid == 4 {
		return SystemName
	}
	path, err := r.ImagePath(pid)
	if err != nil || path == "" {
		logrus.WithFields(logrus.Fields{"pid": pid, "error": err}).Debug("process: image path unavailable")
		return SystemName
	}
	return path
}

// NameCache memoizes Name for a while. Process ids are recycled, so entries
// expire after ttl. It is safe for concurrent use.
type NameCache struct {
	r   Resolver
	lru *expirable.LRU[uint32, string]
}

func NewNameCache(r Resolver, size int, ttl time.Duration) *NameCache {
	return &NameCache{
		r:   r,
		lru: expirable.NewLRU[uint32, string](size, nil, ttl),
	}
}

func (c *NameCache) Name(pid uint32) string {
	if name, ok := c.lru.Get(pid); ok {
		return name
	}
	name := Name(c.r, pid)
	c.lru.Add(pid, name)
	return name
}

// Len is the number of cached names.
func (c *NameCache) Len() int { return c.lru.Len() }
