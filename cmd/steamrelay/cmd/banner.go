package cmd

import (
	"fmt"
)

const banner = `
     _                                 _             
 ___| |_ ___  __ _ _ __ ___  _ __ ___| | __ _ _   _ 
/ __| __/ _ \/ _` + "`" + ` | '_ ` + "`" + ` _ \| '__/ _ \ |/ _` + "`" + ` | | | |
\__ \ ||  __/ (_| | | | | | | | |  __/ | (_| | |_| |
|___/\__\___|\__,_|_| |_| |_|_|  \___|_|\__,_|\__, |
                                              |___/ 
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Steam Message Relay - Version %s\x1b[0m\n\n", Version)
}
