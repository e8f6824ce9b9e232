package models

import "github.com/uptrace/bun"

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID       string `bun:"id,pk" json:"id"`
	Username string `bun:"username,notnull" json:"username"`
	Email    string `bun:"email,notnull" json:"email"`
}
