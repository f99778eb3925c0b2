package models

import "time"

// Folder groups a user's images into a gallery.
type Folder struct {
	ID          string    `bson:"_id" json:"id"`
	OwnerID     string    `bson:"ownerId" json:"ownerId"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CoverKey    string    `bson:"coverKey,omitempty" json:"-"`
	ImageCount  int       `bson:"imageCount" json:"imageCount"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Image is the metadata for one stored media object; the bytes live on the media host under Key.
type Image struct {
	ID          string    `bson:"_id" json:"id"`
	FolderID    string    `bson:"folderId" json:"folderId"`
	OwnerID     string    `bson:"ownerId" json:"ownerId"`
	Key         string    `bson:"key" json:"-"`
	ContentType string    `bson:"contentType" json:"contentType"`
	Size        int64     `bson:"size" json:"size"`
	Caption     string    `bson:"caption,omitempty" json:"caption,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}
