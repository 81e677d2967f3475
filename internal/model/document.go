package model

type Document struct {
	Name   string `json:"name"`
	Pages  int    `json:"pages"`
	Chunks int    `json:"chunks"`
	Ctime  int64  `json:"ctime"`
}
