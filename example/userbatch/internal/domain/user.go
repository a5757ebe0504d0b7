// Package domain holds the entities and input records of the userbatch jobs.
package domain

import (
	"strings"
	"time"
)

// InvalidEmail is the email value the validation rule rejects.
const InvalidEmail = "invalid_email"

// User is a row of the users table.
type User struct {
	ID       int64  `gorm:"column:user_id;primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"column:username;not null" json:"username"`
	Email    string `gorm:"column:email;not null" json:"email"`
}

// TableName returns the name of the users table.
func (User) TableName() string {
	return "users"
}

// Board is a row of the boards table, owned by a User.
type Board struct {
	ID      int64  `gorm:"column:board_id;primaryKey;autoIncrement"`
	Title   string `gorm:"column:title;not null"`
	Content string `gorm:"column:content;not null"`
	UserID  int64  `gorm:"column:user_id;not null"`
}

// TableName returns the name of the boards table.
func (Board) TableName() string {
	return "boards"
}

// UserInfo is one element of a users input document.
type UserInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ToUser converts the input record to a new User.
func (u UserInfo) ToUser() User {
	return User{Username: u.Username, Email: u.Email}
}

// BoardInfo is a board of a user/board input document. UserUsername refers to a user of the same document.
type BoardInfo struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	UserUsername string `json:"userUsername"`
}

// UserBoardDTO is a user/board input document.
type UserBoardDTO struct {
	Users  []UserInfo  `json:"users"`
	Boards []BoardInfo `json:"boards"`
}

// UserRecord is the parquet row of an exported user.
type UserRecord struct {
	ID         int64  `parquet:"name=user_id, type=INT64"`
	Username   string `parquet:"name=username, type=BYTE_ARRAY, convertedtype=UTF8"`
	Email      string `parquet:"name=email, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExportedAt int64  `parquet:"name=exported_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// NewUserRecord converts u to its export row.
func NewUserRecord(u User, exportedAt time.Time) UserRecord {
	return UserRecord{ID: u.ID, Username: u.Username, Email: u.Email, ExportedAt: exportedAt.UnixMilli()}
}

// Initial returns the lowercase first letter of the username, or "_" for an empty one.
func (r UserRecord) Initial() string {
	if r.Username == "" {
		return "_"
	}
	return strings.ToLower(r.Username[:1])
}
