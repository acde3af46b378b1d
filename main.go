/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/codearena/judge/cmd"

func main() {
	cmd.Execute()
}
