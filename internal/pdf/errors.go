package pdf

import "errors"

var (
	// ErrIO means the corpus directory or a file in it could not be read.
	ErrIO = errors.New("pdf: i/o failure")

	// ErrOCR means a page could not be rendered or recognized.
	ErrOCR = errors.New("pdf: ocr failure")

	// ErrNoUsableText means no page of any file produced text.
	ErrNoUsableText = errors.New("pdf: no usable text in corpus")
)
