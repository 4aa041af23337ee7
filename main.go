package main

import "github.com/weaviate/deephash-datasets/cmd"

func main() {
	cmd.Execute()
}
