package domain

import "time"

// PlacementRecord - which account received a transferred file
type PlacementRecord struct {
	Prefix     string    `json:"prefix" dynamodbav:"prefix"`       // Directory path - Partition Key
	FileName   string    `json:"file_name" dynamodbav:"file_name"` // Filename - Sort Key
	Account    string    `json:"account" dynamodbav:"account"`
	Location   string    `json:"location" dynamodbav:"location"`
	Size       int64     `json:"size" dynamodbav:"size"`
	UploadedAt time.Time `json:"uploaded_at" dynamodbav:"uploaded_at"`
}
