package zkr

import (
	"fmt"
	"io"
	"path"
	"sort"

	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/config"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

func Dump(l lager.Logger, conf *config.Config, root string, out io.Writer) {
	adapter := connectToStoreAdapter(l, conf)
	defer adapter.Disconnect()

	walk(adapter, root, func(node storeadapter.StoreNode) {
		kind := "[persistent]"
		if node.Ephemeral {
			kind = "[ephemeral]"
		}
		fmt.Fprintf(out, "%s %s v%d: %s\n", node.Key, kind, node.Version, node.Value)
	})
}

func Clear(l lager.Logger, conf *config.Config, root string) error {
	adapter := connectToStoreAdapter(l, conf)
	defer adapter.Disconnect()

	err := clearTree(adapter, root)
	if err != nil {
		l.Error("clear.failed", err, lager.Data{"root": root})
		return err
	}
	l.Info("clear.cleared", lager.Data{"root": root})
	return nil
}

// walk visits every node below key, parents before children, skipping the
// store's own bookkeeping tree. key itself is not visited.
func walk(store storeadapter.StoreAdapter, key string, callback func(storeadapter.StoreNode)) {
	children, err := store.Children(key)
	if err != nil {
		return
	}
	sort.Strings(children)

	for _, child := range children {
		childKey := path.Join(key, child)
		if childKey == "/zookeeper" {
			continue
		}

		node, err := store.Get(childKey)
		if err != nil {
			continue
		}
		callback(node)
		walk(store, childKey, callback)
	}
}

// clearTree deletes key and everything under it. Nodes that vanish while
// clearing are fine.
func clearTree(store storeadapter.StoreAdapter, key string) error {
	children, err := store.Children(key)
	if storeadapter.IsKeyNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, child := range children {
		childKey := path.Join(key, child)
		if childKey == "/zookeeper" {
			continue
		}
		err := clearTree(store, childKey)
		if err != nil {
			return err
		}
	}

	if key == "/" {
		return nil
	}

	err = store.Delete(key, storeadapter.AnyVersion)
	if storeadapter.IsKeyNotFoundError(err) {
		return nil
	}
	return err
}
