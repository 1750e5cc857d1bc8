package store

import (
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

// RootJobQueryOptions filter and page the root jobs, before their children
// are joined in.
type RootJobQueryOptions BaseQuerier

func NewRootJobQueryOptions() *RootJobQueryOptions {
	return &RootJobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *RootJobQueryOptions) WithLimit(limit int) *RootJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *RootJobQueryOptions) WithOffset(offset int) *RootJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}

// WithStatus keeps roots whose own status matches.
func (o *RootJobQueryOptions) WithStatus(status string) *RootJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("parent.status = ?", status)
	})
	return o
}
