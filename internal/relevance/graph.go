// Package relevance models how closely documents are related through shared
// labels, as an undirected unweighted graph with cached BFS distances.
package relevance

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/crosslink/internal/metrics"
	"github.com/starford/crosslink/internal/models"
)

// Unreachable is the distance between documents in different components.
const Unreachable = math.MaxInt

// LabelFunc extracts the label values of a document.
type LabelFunc func(*models.Document) []string

// Graph is built once per run and is safe for concurrent Distance calls.
// Nodes are indexed in the order the documents were passed to Build.
type Graph struct {
	paths []string
	index map[string]int
	adj   [][]int
	edges int

	mu    sync.RWMutex
	cache map[int][]int
	group singleflight.Group
}

// Build connects every pair of documents that share at least one label.
// Several shared labels still produce a single edge.
func Build(docs []*models.Document, labelsOf LabelFunc) *Graph {
	g := &Graph{
		paths: make([]string, len(docs)),
		index: make(map[string]int, len(docs)),
		adj:   make([][]int, len(docs)),
		cache: make(map[int][]int),
	}

	byLabel := make(map[string][]int)
	var labels []string
	for i, d := range docs {
		g.paths[i] = d.Path
		if _, dup := g.index[d.Path]; !dup {
			g.index[d.Path] = i
		}
		for _, l := range labelsOf(d) {
			if _, ok := byLabel[l]; !ok {
				labels = append(labels, l)
			}
			byLabel[l] = append(byLabel[l], i)
		}
	}

	seen := make(map[[2]int]struct{})
	for _, l := range labels {
		members := byLabel[l]
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if i == j {
					continue
				}
				if i > j {
					i, j = j, i
				}
				if _, dup := seen[[2]int{i, j}]; dup {
					continue
				}
				seen[[2]int{i, j}] = struct{}{}
				g.adj[i] = append(g.adj[i], j)
				g.adj[j] = append(g.adj[j], i)
				g.edges++
			}
		}
	}
	for i := range g.adj {
		sort.Ints(g.adj[i])
	}
	return g
}

// Len returns the number of documents.
func (g *Graph) Len() int {
	return len(g.paths)
}

// Edges returns the number of undirected edges.
func (g *Graph) Edges() int {
	return g.edges
}

// IndexOf returns the node index of a document path.
func (g *Graph) IndexOf(path string) (int, bool) {
	i, ok := g.index[path]
	return i, ok
}

// Path returns the document path of node i.
func (g *Graph) Path(i int) string {
	return g.paths[i]
}

// Neighbors returns the sorted node indices adjacent to i.
func (g *Graph) Neighbors(i int) []int {
	return append([]int(nil), g.adj[i]...)
}

// Distance returns the number of edges on a shortest path from src to dst:
// 0 for the same node, Unreachable if no path exists.
func (g *Graph) Distance(src, dst int) int {
	if src < 0 || src >= len(g.paths) || dst < 0 || dst >= len(g.paths) {
		return Unreachable
	}
	if src == dst {
		return 0
	}
	return g.table(src)[dst]
}

// PathDistance is Distance keyed by document path.
func (g *Graph) PathDistance(src, dst string) (int, bool) {
	i, ok := g.IndexOf(src)
	if !ok {
		return Unreachable, false
	}
	j, ok := g.IndexOf(dst)
	if !ok {
		return Unreachable, false
	}
	return g.Distance(i, j), true
}

// table returns the distance table of src, computing it on first use.
// Returned slices are shared with the cache and must not be modified.
func (g *Graph) table(src int) []int {
	g.mu.RLock()
	dist, ok := g.cache[src]
	g.mu.RUnlock()
	if ok {
		metrics.DistanceCacheHits.Inc()
		return dist
	}

	v, _, _ := g.group.Do(strconv.Itoa(src), func() (any, error) {
		g.mu.RLock()
		cached, ok := g.cache[src]
		g.mu.RUnlock()
		if ok {
			return cached, nil
		}
		metrics.DistanceCacheMisses.Inc()
		d := g.bfs(src)
		g.mu.Lock()
		g.cache[src] = d
		g.mu.Unlock()
		return d, nil
	})
	return v.([]int)
}

func (g *Graph) bfs(src int) []int {
	dist := make([]int, len(g.paths))
	for i := range dist {
		dist[i] = Unreachable
	}
	dist[src] = 0
	queue := []int{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[cur] {
			if dist[next] != Unreachable {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// Cached reports how many sources currently have a distance table.
func (g *Graph) Cached() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}
