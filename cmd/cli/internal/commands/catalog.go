package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/studysync/studysync/internal/catalog"
	"github.com/studysync/studysync/internal/enroll"
)

// CatalogCmd groups the read-only catalog operations.
type CatalogCmd struct {
	List CatalogListCmd `cmd:"" help:"List catalog items"`
	Show CatalogShowCmd `cmd:"" help:"Show one item with its contents"`
}

type CatalogListCmd struct {
	apiFlags `embed:""`

	Kind string `arg:"" help:"Item kind (course, notes)"`
}

func (c *CatalogListCmd) Run(ctx context.Context, globals *Globals) error {
	kind, err := catalog.ParseKind(c.Kind)
	if err != nil {
		return err
	}

	client, _, err := c.buildCached(globals)
	if err != nil {
		return err
	}

	items, err := catalog.NewFetcher(client).List(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}

	if len(items) == 0 {
		fmt.Printf("No %s found.\n", kind)
		return nil
	}

	fmt.Printf("%-24s %-40s %-10s %-8s %-8s\n", "ID", "Title", "Price", "Rating", "Enrolled")
	fmt.Println(strings.Repeat("─", 95))

	for _, item := range items {
		fmt.Printf("%-24s %-40s %-10s %-8.1f %-8d\n",
			item.ID,
			truncate(item.Title, 40),
			formatPrice(item.Price),
			item.Rating,
			item.EnrolledCount)
	}

	fmt.Printf("\nTotal: %d\n", len(items))
	return nil
}

type CatalogShowCmd struct {
	apiFlags `embed:""`

	Kind string `arg:"" help:"Item kind (course, notes)"`
	ID   string `arg:"" help:"Item id"`
}

func (c *CatalogShowCmd) Run(ctx context.Context, globals *Globals) error {
	kind, err := catalog.ParseKind(c.Kind)
	if err != nil {
		return err
	}

	client, _, err := c.buildCached(globals)
	if err != nil {
		return err
	}

	item, err := catalog.NewFetcher(client).Get(ctx, kind, c.ID)
	if err != nil {
		return err
	}

	printItem(item)
	return nil
}

func printItem(item *catalog.Item) {
	fmt.Printf("%s (%s)\n", item.Title, item.ID)
	fmt.Printf("Price: %s   Access: %s\n", formatPrice(item.Price), item.Access)
	if item.Description != "" {
		fmt.Println(item.Description)
	}
	if item.Rating > 0 {
		fmt.Printf("Rating: %.1f   Enrolled: %d   Views: %d\n",
			item.Rating, item.EnrolledCount, item.ViewCount)
	}

	if len(item.Contents) == 0 {
		return
	}

	fmt.Println("\nContents:")
	for _, content := range item.Contents {
		marker := " "
		if content.Preview {
			marker = "*"
		}
		fmt.Printf("  %s %-40s", marker, truncate(content.Title, 40))
		if content.Duration > 0 {
			fmt.Printf(" %dm%02ds", content.Duration/60, content.Duration%60)
		}
		if content.Pages > 0 {
			fmt.Printf(" %d pages", content.Pages)
		}
		fmt.Println()
	}
	fmt.Println("\n(* free preview)")
}

// AccessCmd asks the backend whether the signed-in user holds an item.
type AccessCmd struct {
	apiFlags `embed:""`

	Kind string `arg:"" help:"Item kind (course, notes)"`
	ID   string `arg:"" help:"Item id"`
}

func (c *AccessCmd) Run(ctx context.Context, globals *Globals) error {
	kind, err := catalog.ParseKind(c.Kind)
	if err != nil {
		return err
	}

	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	access, err := enroll.NewService(client, store).CheckAccess(ctx, kind, c.ID)
	if err != nil {
		return err
	}

	if !access.HasAccess {
		fmt.Printf("No access to %s %s.\n", kind, c.ID)
		return nil
	}

	fmt.Printf("Access granted to %s %s", kind, c.ID)
	if access.Grant != nil {
		fmt.Printf(" (grant %s, status %s)", access.Grant.ID, access.Grant.Status)
	}
	fmt.Println()
	return nil
}
