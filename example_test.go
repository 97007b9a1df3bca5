package rodb_test

import (
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/rodb"
	"github.com/hupe1980/rodb/schema"
)

func Example() {
	dir, err := os.MkdirTemp("", "rodb-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	resources := []schema.Resource{
		schema.NewResource("author",
			schema.Field("name", schema.String)),
		schema.NewResource("book",
			schema.Field("title", schema.String),
			schema.Field("year", schema.Integer).Indexed(schema.FlatIndex),
			schema.Singular("author", "author")),
	}

	db, err := rodb.Create(dir, resources)
	if err != nil {
		log.Fatal(err)
	}
	author, _ := db.New("author")
	_ = author.Set("name", "Stanislaw Lem")
	for _, title := range []string{"Solaris", "Return from the Stars"} {
		book, _ := db.New("book")
		_ = book.Set("title", title)
		_ = book.Set("year", 1961)
		_ = book.SetRef("author", author)
		if err := db.Save(book); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println("pending:", db.Pending())
	if err := db.Save(author); err != nil {
		log.Fatal(err)
	}
	fmt.Println("pending:", db.Pending())
	if err := db.Close(); err != nil {
		log.Fatal(err)
	}

	db, err = rodb.Open(dir, resources, rodb.WithReadOnly())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	books, _ := db.Container("book")
	found, err := books.FindBy("year", 1961)
	if err != nil {
		log.Fatal(err)
	}
	elems, err := found.ToSlice()
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range elems {
		book := e.(*rodb.Object)
		title, _ := book.String("title")
		a, _ := book.Ref("author")
		name, _ := a.String("name")
		fmt.Printf("%d %s by %s\n", book.ID(), title, name)
	}

	// Output:
	// pending: 2
	// pending: 0
	// 1 Solaris by Stanislaw Lem
	// 2 Return from the Stars by Stanislaw Lem
}
