package index

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"media-library/internal/library"
)

// ResolveFaceSignatures maps detector face signatures to cluster ids,
// minting a new cluster for each previously unseen signature. Cluster
// membership itself is only updated when the analysis result commits.
func (x *Index) ResolveFaceSignatures(signatures []string) []string {
	if len(signatures) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	ids := make([]string, 0, len(signatures))
	seen := make(map[string]struct{}, len(signatures))
	for _, sig := range signatures {
		if sig == "" {
			continue
		}
		clusterID, ok := x.signatures[sig]
		if !ok {
			clusterID = uuid.NewString()
			x.signatures[sig] = clusterID
			x.clusters[clusterID] = &library.FaceCluster{ID: clusterID}
		}
		if _, dup := seen[clusterID]; dup {
			continue
		}
		seen[clusterID] = struct{}{}
		ids = append(ids, clusterID)
	}
	return ids
}

// FaceClusters returns a copy of every face cluster, sorted by id.
func (x *Index) FaceClusters() []library.FaceCluster {
	x.mu.RLock()
	defer x.mu.RUnlock()

	clusters := make([]library.FaceCluster, 0, len(x.clusters))
	for _, c := range x.clusters {
		cp := *c
		cp.Members = append([]string(nil), c.Members...)
		clusters = append(clusters, cp)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

// LabelCluster sets the user label on a face cluster.
func (x *Index) LabelCluster(clusterID, label string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.clusters[clusterID]
	if !ok {
		return fmt.Errorf("unknown face cluster %s", clusterID)
	}
	c.Label = label
	x.bump()
	return nil
}

// MergeClusters folds cluster src into dst: member union, signatures
// re-pointed, src removed. Items referencing src are rewritten to
// reference dst so lookups stay consistent; the merge judgement itself
// is an analyzer concern and arrives here as a plain instruction.
func (x *Index) MergeClusters(dst, src string) error {
	if dst == src {
		return fmt.Errorf("cannot merge cluster %s into itself", dst)
	}

	x.mu.Lock()
	dstCluster, ok := x.clusters[dst]
	if !ok {
		x.mu.Unlock()
		return fmt.Errorf("unknown face cluster %s", dst)
	}
	srcCluster, ok := x.clusters[src]
	if !ok {
		x.mu.Unlock()
		return fmt.Errorf("unknown face cluster %s", src)
	}

	members := append([]string(nil), srcCluster.Members...)
	for sig, id := range x.signatures {
		if id == src {
			x.signatures[sig] = dst
		}
	}
	for _, m := range members {
		dstCluster.Members = addMember(dstCluster.Members, m)
	}
	if dstCluster.Label == "" {
		dstCluster.Label = srcCluster.Label
	}
	delete(x.clusters, src)
	x.mu.Unlock()

	// Rewrite member items under their own entry locks.
	for _, id := range members {
		e := x.lookup(id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		if !e.removed {
			// Item copies handed out by Get/Items alias the old backing
			// array, so the rewrite must build a fresh slice.
			clusters := e.item.Attributes.FaceClusters
			out := make([]string, 0, len(clusters))
			for _, c := range clusters {
				if c != src {
					out = append(out, c)
				}
			}
			e.item.Attributes.FaceClusters = addMember(out, dst)
			sort.Strings(e.item.Attributes.FaceClusters)
		}
		e.mu.Unlock()
	}

	x.mu.Lock()
	x.bump()
	x.mu.Unlock()
	return nil
}

// registerClustersLocked records item membership in each cluster.
// Caller holds x.mu for writing.
func (x *Index) registerClustersLocked(itemID string, clusterIDs []string) {
	for _, cid := range clusterIDs {
		c, ok := x.clusters[cid]
		if !ok {
			// Snapshot restore may reference clusters minted in a prior
			// run; recreate the record.
			c = &library.FaceCluster{ID: cid}
			x.clusters[cid] = c
		}
		c.Members = addMember(c.Members, itemID)
	}
}

// unregisterClustersLocked drops item membership from each cluster.
// Empty unlabeled clusters are garbage collected. Caller holds x.mu for
// writing.
func (x *Index) unregisterClustersLocked(itemID string, clusterIDs []string) {
	for _, cid := range clusterIDs {
		c, ok := x.clusters[cid]
		if !ok {
			continue
		}
		out := c.Members[:0]
		for _, m := range c.Members {
			if m != itemID {
				out = append(out, m)
			}
		}
		c.Members = out
		if len(c.Members) == 0 && c.Label == "" {
			delete(x.clusters, cid)
		}
	}
}

func addMember(members []string, id string) []string {
	for _, m := range members {
		if m == id {
			return members
		}
	}
	return append(members, id)
}
