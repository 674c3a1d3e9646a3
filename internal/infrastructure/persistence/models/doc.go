// Package models holds the GORM rows behind the sales aggregates. Domain
// types carry no tags; each model converts to and from its aggregate, and
// the repositories only ever touch models.
package models
