package main

import "github.com/dineflow/restaurant-ordering/cmd"

func main() {
	cmd.Execute()
}
