package writer

import "github.com/hatlonely/tabdb/ref"

func init() {
	ref.MustRegister(Namespace, "ConsoleWriter", NewConsoleWriterWithOptions)
	ref.MustRegister(Namespace, "FileWriter", NewFileWriterWithOptions)
	ref.MustRegister(Namespace, "MultiWriter", NewMultiWriterWithOptions)
}
