package forest

// Build converts an ordered stream of flat rows into a forest. Rows must be
// pre-sorted by (categoryOrder, level, boardOrder); the sort is a caller
// precondition and only cheap consequences of violating it are detected.
//
// A stored level that disagrees with the level computed from the parent chain
// is corrected on the in-memory node and reported in the returned LevelFix
// list. Build itself never writes anywhere.
func Build(rows []BoardRow) (*Forest, []LevelFix, error) {
	f := NewForest()
	var fixes []LevelFix

	for _, row := range rows {
		if _, ok := f.Categories[row.CategoryID]; !ok {
			f.Categories[row.CategoryID] = &Category{
				ID:          row.CategoryID,
				Name:        row.CategoryName,
				Order:       row.CategoryOrder,
				CanCollapse: row.CategoryCanCollapse,
			}
			f.CategoryOrder = append(f.CategoryOrder, row.CategoryID)
		}
		cat := f.Categories[row.CategoryID]

		b := &Board{
			ID:            row.ID,
			Name:          row.Name,
			Description:   row.Description,
			CategoryID:    row.CategoryID,
			ParentID:      row.ParentID,
			Level:         row.Level,
			Order:         row.Order,
			PostCount:     row.PostCount,
			TopicCount:    row.TopicCount,
			AllowedGroups: append([]int64(nil), row.AllowedGroups...),
			DeniedGroups:  append([]int64(nil), row.DeniedGroups...),
			ModeratorIDs:  append([]int64(nil), row.ModeratorIDs...),
			IsRedirect:    row.IsRedirect,
		}

		if row.ParentID == 0 {
			if b.Level != 0 {
				b.Level = 0
				fixes = append(fixes, LevelFix{BoardID: b.ID, Level: 0})
			}
			cat.BoardIDs = append(cat.BoardIDs, b.ID)
		} else {
			parent, ok := f.Boards[row.ParentID]
			if !ok {
				return nil, nil, &OrphanBoardError{BoardID: row.ID, ParentID: row.ParentID}
			}
			if want := parent.Level + 1; b.Level != want {
				b.Level = want
				fixes = append(fixes, LevelFix{BoardID: b.ID, Level: want})
			}
			f.children[row.ParentID] = append(f.children[row.ParentID], b.ID)
		}

		f.Boards[b.ID] = b
	}

	return f, fixes, nil
}
