// Command arbor prints, watches and serves a live services tree.
package main

func main() {
	Execute()
}
