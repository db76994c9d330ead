package models

import (
	"github.com/nkkko/lista/pkg/proto"
)

// DevLoginResponse carries a development token and its user
type DevLoginResponse struct {
	Token string      `json:"token"`
	User  *proto.User `json:"user"`
}

// SearchMeta describes a product search
type SearchMeta struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}
