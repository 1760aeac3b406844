package cmd

import (
	"fmt"
	"io"
)

const banner = `
      _         
  ___| | _____  
 / __| |/ / __| 
 \__ \   <\__ \ 
 |___/_|\_\___/ 
                
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Session Key Server - Version %s\x1b[0m\n\n", Version)
}
