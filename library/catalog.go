package library

import (
	"fmt"
	"slices"
	"strings"
)

func validateItem(it Item) error {
	if strings.TrimSpace(it.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	if strings.TrimSpace(it.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidItem)
	}
	if it.AvailableCopies < 0 {
		return fmt.Errorf("%w: copies cannot be negative", ErrInvalidItem)
	}
	return nil
}

// AddItem appends a new item to the catalog. The item must have a title, an
// author and at least one copy, and its id must not already be in use.
func (e *Engine) AddItem(it Item) error {
	it.Deleted = false
	e.mu.Lock()
	if err := validateItem(it); err != nil {
		return e.reject("add_item", err)
	}
	if it.AvailableCopies == 0 {
		return e.reject("add_item", fmt.Errorf("%w: at least one copy is required", ErrInvalidItem))
	}
	if _, ok := e.st.items[it.ID]; ok {
		return e.reject("add_item", fmt.Errorf("%w: %d", ErrDuplicateItem, it.ID))
	}

	e.st.items[it.ID] = it
	e.st.itemOrder = append(e.st.itemOrder, it.ID)
	e.commit("add_item", topicCatalog)

	e.log.Debug().Int64("item_id", it.ID).Str("title", it.Title).Int("copies", it.AvailableCopies).Msg("item added")
	return nil
}

// EditItem replaces the title, author and copy count of an existing item.
// The id of the stored item never changes, whatever patch.ID says.
func (e *Engine) EditItem(id int64, patch Item) error {
	patch.ID = id
	patch.Deleted = false
	e.mu.Lock()
	if _, ok := e.st.items[id]; !ok {
		return e.reject("edit_item", fmt.Errorf("edit item %d: %w", id, ErrItemNotFound))
	}
	if err := validateItem(patch); err != nil {
		return e.reject("edit_item", err)
	}

	e.st.items[id] = patch
	e.commit("edit_item", topicCatalog)

	e.log.Debug().Int64("item_id", id).Msg("item edited")
	return nil
}

// DeleteItem removes an item from the catalog. Active loans of the item are
// kept; they display as a deleted-item placeholder and cannot be returned
// unless an item with the same id is added again.
func (e *Engine) DeleteItem(id int64) error {
	e.mu.Lock()
	if _, ok := e.st.items[id]; !ok {
		return e.reject("delete_item", fmt.Errorf("delete item %d: %w", id, ErrItemNotFound))
	}

	delete(e.st.items, id)
	if i := slices.Index(e.st.itemOrder, id); i >= 0 {
		e.st.itemOrder = slices.Delete(e.st.itemOrder, i, i+1)
	}
	e.commit("delete_item", topicCatalog)

	e.log.Debug().Int64("item_id", id).Msg("item deleted")
	return nil
}

// Item returns a copy of the catalog entry for id.
func (e *Engine) Item(id int64) (Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.st.items[id]
	if !ok {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	return it, nil
}

// Catalog is the feed of catalog snapshots in insertion order.
func (e *Engine) Catalog() Feed[[]Item] {
	return Feed[[]Item]{engine: e, topics: topicCatalog, view: catalogView}
}

func catalogView(st *state) []Item {
	items := make([]Item, 0, len(st.itemOrder))
	for _, id := range st.itemOrder {
		items = append(items, st.items[id])
	}
	return items
}
