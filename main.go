package main

import "github.com/AdeepaK2/gear-up-be-sub000/cmd"

func main() {
	cmd.Execute()
}
