package memory

import (
	"fmt"
)

// validLinkTypes are the storable edge types. led_to is intentionally
// absent: it only exists as the read-time inverse of caused_by.
var validLinkTypes = map[string]bool{
	LinkCausedBy:  true,
	LinkRelatedTo: true,
	LinkSupersede: true,
	LinkBlockedBy: true,
}

// CreateLink creates a directed typed edge between two memories.
// Re-creating an identical link is a silent no-op. A led_to link is
// stored as the inverse caused_by edge.
func (s *Store) CreateLink(sourceID, targetID, linkType string) (*MemoryLink, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("memory: link %s to itself: %w", sourceID, ErrPrecondition)
	}
	if linkType == LinkLedTo {
		sourceID, targetID = targetID, sourceID
		linkType = LinkCausedBy
	}
	if !validLinkTypes[linkType] {
		return nil, fmt.Errorf("memory: link type %q: %w", linkType, ErrPrecondition)
	}
	for _, id := range []string{sourceID, targetID} {
		if _, err := s.GetMemory(id); err != nil {
			return nil, err
		}
	}

	link := &MemoryLink{
		SourceID:  sourceID,
		TargetID:  targetID,
		LinkType:  linkType,
		CreatedAt: nowMillis(),
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO memory_links (source_id, target_id, link_type, created_at)
		 VALUES (?, ?, ?, ?)`,
		link.SourceID, link.TargetID, link.LinkType, link.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: create link: %w", err)
	}
	return link, nil
}

// GetLinksFrom returns outgoing edges for a memory. An empty linkType
// returns all types.
func (s *Store) GetLinksFrom(memoryID, linkType string) ([]MemoryLink, error) {
	query := `SELECT source_id, target_id, link_type, created_at FROM memory_links WHERE source_id = ?`
	args := []any{memoryID}
	if linkType != "" {
		query += ` AND link_type = ?`
		args = append(args, linkType)
	}
	query += ` ORDER BY created_at ASC`
	return s.queryLinks(query, args...)
}

// GetLinksTo returns incoming edges for a memory. An empty linkType
// returns all types.
func (s *Store) GetLinksTo(memoryID, linkType string) ([]MemoryLink, error) {
	query := `SELECT source_id, target_id, link_type, created_at FROM memory_links WHERE target_id = ?`
	args := []any{memoryID}
	if linkType != "" {
		query += ` AND link_type = ?`
		args = append(args, linkType)
	}
	query += ` ORDER BY created_at ASC`
	return s.queryLinks(query, args...)
}

// LinksFor returns every edge incident to a memory, outgoing first,
// with incoming caused_by edges presented as led_to from this memory's
// perspective.
func (s *Store) LinksFor(memoryID string) ([]MemoryLink, error) {
	out, err := s.GetLinksFrom(memoryID, "")
	if err != nil {
		return nil, err
	}
	in, err := s.GetLinksTo(memoryID, "")
	if err != nil {
		return nil, err
	}
	for _, l := range in {
		if l.LinkType == LinkCausedBy {
			// invert for the reader: the other memory was caused by
			// this one, so from here it led to the other.
			out = append(out, MemoryLink{
				SourceID:  l.TargetID,
				TargetID:  l.SourceID,
				LinkType:  LinkLedTo,
				CreatedAt: l.CreatedAt,
			})
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// DeleteLink removes a single edge. Returns false when no such edge
// exists.
func (s *Store) DeleteLink(sourceID, targetID, linkType string) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM memory_links WHERE source_id = ? AND target_id = ? AND link_type = ?`,
		sourceID, targetID, linkType,
	)
	if err != nil {
		return false, fmt.Errorf("memory: delete link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) queryLinks(query string, args ...any) ([]MemoryLink, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query links: %w", err)
	}
	defer rows.Close()

	var result []MemoryLink
	for rows.Next() {
		var l MemoryLink
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.LinkType, &l.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
