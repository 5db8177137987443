package repository

import "go.mongodb.org/mongo-driver/bson/primitive"

// SetIDSource replaces ObjectID generation for tests.
func (r *MongoPriceRepo) SetIDSource(next func() primitive.ObjectID) {
	r.newID = next
}

var InsertedPrefix = insertedPrefix
