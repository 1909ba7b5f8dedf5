// internal/engine/items_test.go
package engine

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

func TestBuildItemProcess(t *testing.T) {
    item, err := BuildItem(database.TypeProcess, map[string]string{
        "name": "sshd",
        "path": "/usr/sbin/sshd",
        "user": "root",
        "args": "-D",
    })
    require.NoError(t, err)

    assert.Equal(t, "sshd|/usr/sbin/sshd", item.Key)
    assert.Equal(t, "root|-D", item.Value)
}

func TestBuildItemPort(t *testing.T) {
    item, err := BuildItem(database.TypePort, map[string]string{
        "port":     "8080",
        "protocol": "tcp",
        "state":    "listen",
        "process":  "nginx",
    })
    require.NoError(t, err)

    assert.Equal(t, "8080/tcp", item.Key)
    assert.Equal(t, "listen|nginx", item.Value)
}

func TestBuildItemSoftware(t *testing.T) {
    item, err := BuildItem(database.TypeSoftware, map[string]string{
        "name":    "nginx",
        "version": "1.22",
    })
    require.NoError(t, err)

    assert.Equal(t, "nginx", item.Key)
    assert.Equal(t, "1.22|", item.Value)
}

func TestBuildItemUSBAndLoginHaveNoValue(t *testing.T) {
    usb, err := BuildItem(database.TypeUSB, map[string]string{
        "vendor_id":  "046d",
        "product_id": "c52b",
        "serial":     "A1",
    })
    require.NoError(t, err)
    assert.Equal(t, "046d:c52b:A1", usb.Key)
    assert.Empty(t, usb.Value)

    login, err := BuildItem(database.TypeLogin, map[string]string{
        "username":   "alice",
        "login_type": "ssh",
    })
    require.NoError(t, err)
    assert.Equal(t, "alice:ssh", login.Key)
    assert.Empty(t, login.Value)
}

func TestBuildItemRejectsMissingRequired(t *testing.T) {
    _, err := BuildItem(database.TypeProcess, map[string]string{"name": "sshd"})
    assert.ErrorIs(t, err, ErrInvalidArgument)

    _, err = BuildItem(database.TypePort, map[string]string{"port": "notaport", "protocol": "tcp"})
    assert.ErrorIs(t, err, ErrInvalidArgument)

    _, err = BuildItem(database.TypePort, map[string]string{"port": "80", "protocol": "sctp"})
    assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuildItemUnknownType(t *testing.T) {
    _, err := BuildItem("gpu", map[string]string{})
    assert.ErrorIs(t, err, ErrInvalidArgument)

    assert.ErrorIs(t, ValidateType("gpu"), ErrInvalidArgument)
    assert.NoError(t, ValidateType(database.TypeProcess))
}

func TestBuildItemsSortedAndDeduplicated(t *testing.T) {
    items, err := BuildItems(database.TypeSoftware, []map[string]string{
        {"name": "zsh", "version": "5.9"},
        {"name": "bash", "version": "5.1"},
        {"name": "zsh", "version": "5.8"},
    })
    require.NoError(t, err)

    require.Len(t, items, 2)
    assert.Equal(t, "bash", items[0].Key)
    assert.Equal(t, "zsh", items[1].Key)
    assert.Equal(t, "5.8|", items[1].Value, "last occurrence wins")
}

func TestBuildItemsPropagatesBadItem(t *testing.T) {
    _, err := BuildItems(database.TypeSoftware, []map[string]string{
        {"name": "bash"},
        {"version": "1.0"},
    })
    assert.ErrorIs(t, err, ErrInvalidArgument)
}
