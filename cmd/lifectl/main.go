// Command lifectl is the LifeOS admin tool: migrations, quest seeding,
// manual roll-ups, replays and a terminal dashboard.
package main

import "github.com/lifeos-hub/lifeos/cmd/lifectl/root"

func main() {
	root.Execute()
}
