// Package matchindex keeps the symmetric report -> similar reports adjacency
// used to prioritize comparison candidates.
package matchindex

import "slices"

// Graph maps a report ID to the IDs of reports known to be similar to it.
// A clean graph is symmetric, irreflexive and has no empty entries.
type Graph map[string][]string

// Clean drops self references, duplicates and empty entries. It does not add
// missing reverse links.
func (g Graph) Clean() Graph {
	cleaned := make(Graph, len(g))
	for id, peers := range g {
		if id == "" {
			continue
		}
		unique := dedupe(peers, id)
		if len(unique) > 0 {
			cleaned[id] = unique
		}
	}
	return cleaned
}

// Link replaces the peers of id with matched and restores symmetry: peers that
// dropped out lose their link back to id, new peers gain one.
func (g Graph) Link(id string, matched []string) {
	unique := dedupe(matched, id)
	keep := make(map[string]struct{}, len(unique))
	for _, peer := range unique {
		keep[peer] = struct{}{}
	}

	for peer := range g {
		if peer == id {
			continue
		}
		if _, ok := keep[peer]; ok {
			continue
		}
		g.unlinkOne(peer, id)
	}

	if len(unique) == 0 {
		delete(g, id)
		return
	}

	g[id] = unique
	for _, peer := range unique {
		if !slices.Contains(g[peer], id) {
			g[peer] = append(g[peer], id)
		}
	}
}

// Unlink removes id and every reference to it. It reports whether anything changed.
func (g Graph) Unlink(id string) bool {
	_, changed := g[id]
	delete(g, id)
	for peer := range g {
		if g.unlinkOne(peer, id) {
			changed = true
		}
	}
	return changed
}

// Peers returns a copy of the peers of id.
func (g Graph) Peers(id string) []string {
	return slices.Clone(g[id])
}

func (g Graph) unlinkOne(peer, id string) bool {
	peers := g[peer]
	if !slices.Contains(peers, id) {
		return false
	}
	filtered := slices.DeleteFunc(slices.Clone(peers), func(p string) bool { return p == id })
	if len(filtered) == 0 {
		delete(g, peer)
	} else {
		g[peer] = filtered
	}
	return true
}

func dedupe(ids []string, self string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == self {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
